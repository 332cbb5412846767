package catalog

// Version is the catalog library and CLI version.
const Version = "0.3.0"
