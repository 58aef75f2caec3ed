// Package logging builds the slog-based logger shared by thingd and
// thingctl.
//
// Entries carry service and version; Component adds a component tag so
// registry, dispatcher, binding and API lines can be told apart. JSON is
// the default format, text is for a terminal:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Property values can hold anything a Thing exposes. Log names and codes,
// not payloads, and never tokens.
package logging
