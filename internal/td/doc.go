// Package td renders Things as Web of Things style descriptors.
//
// Serializer implements thing.Describer. Install it on the Registry so
// every hosted Thing can answer a read of its root resource:
//
//	registry.SetDescriber(&td.Serializer{BaseURL: "http://gateway.local:8080"})
//
// Descriptors are plain maps so they encode through any codec. Forms use
// the shared resource path convention, relative to "base" when BaseURL is
// set.
package td
