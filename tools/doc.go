// Package tools defines the Tool interface, the tool Descriptor advertised to
// clients and the Registry that validates arguments and runs tools by name.
package tools
