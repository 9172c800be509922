package version

// Version is overridden at build time via -ldflags "-X servo-backup/src/version.Version=...".
var Version = "0.1.0-dev"
