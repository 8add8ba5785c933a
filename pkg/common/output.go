// Package common provides shared types used across the pix tool.
// It includes the execution result returned by the engine and the structured
// output rendered by the display package.
package common

// ExecutionResult represents the outcome of a pix run.
type ExecutionResult struct {
	// ExitCode is the status code the process should exit with.
	ExitCode int
	// Output is optional structured output printed after the run.
	Output *Output
}

// Output is structured data rendered to the console.
type Output struct {
	// Message is printed first, on its own line.
	Message string
	// KV pairs are printed as aligned "key: value" lines.
	KV []KV
	// Table is printed last.
	Table *Table
}

// KV is a single key/value line of output.
type KV struct {
	Key   string
	Value string
}

// Table is a simple column-aligned table.
type Table struct {
	Header []string
	Rows   [][]string
}
