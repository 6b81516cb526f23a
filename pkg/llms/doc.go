// Package llms provides the provider-neutral message, tool and option types
// used to talk to a hosted language model.
//
// Provider implementations live in subpackages, see googleai.
package llms
