package version

// Version is the CLI release version. Overridden at build time with
// -ldflags "-X .../internal/version.Version=...".
var Version = "0.1.13"
