package types

// Version is the canonical stagekit version.
// The CLI, the metadata archive records and the completion events all report it.
const Version = "0.3.0"

// ContractVersion is stamped on archived records and completion events.
// Kept in lockstep with Version.
const ContractVersion = Version
