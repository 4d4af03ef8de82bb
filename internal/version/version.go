package version

// Version is the current version of nvme-migrate.
// Use semantic versioning: MAJOR.MINOR.PATCH
const Version = "0.4.0"
