package version

// Version is the semantic version of the snaprot binary. Overridden at
// build time via -ldflags "-X snaprot/src/version.Version=…".
var Version = "0.3.0-dev"
