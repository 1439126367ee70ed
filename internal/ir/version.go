package ir

// Version is the noderepo release, reported by the CLI.
const Version = "0.1.0"
