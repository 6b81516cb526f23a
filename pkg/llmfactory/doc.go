// Package llmfactory creates the language model used by the client from its configuration.
package llmfactory
