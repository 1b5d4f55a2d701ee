package app

// Version is the running CMS release. It is overridden at link time with
// -ldflags "-X github.com/exiloncms/exiloncms/internal/app.Version=v1.2.3".
var Version = "v1.0.0"
