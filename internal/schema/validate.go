package schema

import "fmt"

// MissingColumnError reports a required column absent from a document.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("schema: missing required column %q", e.Column)
}

// ExpectedStringError reports a String column whose value is not text.
type ExpectedStringError struct {
	Column string
}

func (e *ExpectedStringError) Error() string {
	return fmt.Sprintf("schema: column %q expected a string value", e.Column)
}

// ExpectedBooleanError reports a Boolean column whose value is not a bool.
type ExpectedBooleanError struct {
	Column string
}

func (e *ExpectedBooleanError) Error() string {
	return fmt.Sprintf("schema: column %q expected a boolean value", e.Column)
}

// Validate enforces spec.md §4.5 against doc: required columns must be
// present, and present columns must match their declared data type. Extra
// fields not mentioned in the schema are accepted and left untouched.
func Validate(t *Table, doc Document) error {
	for name, col := range t.Columns {
		v, present := doc[name]
		if !present {
			if col.Required {
				return &MissingColumnError{Column: name}
			}
			continue
		}
		switch col.DataType {
		case TypeString:
			if _, ok := v.(string); !ok {
				return &ExpectedStringError{Column: name}
			}
		case TypeBoolean:
			if _, ok := v.(bool); !ok {
				return &ExpectedBooleanError{Column: name}
			}
		}
	}
	return nil
}
