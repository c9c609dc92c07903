package types

import "os"

// Permission contract for everything stagekit creates.
const (
	DirPerm  os.FileMode = 0o775
	FilePerm os.FileMode = 0o664
)

// Names inside a version root.
const (
	BestLink       = "best"
	LatestLink     = "latest"
	ProductionRuns = "production-runs"
)

// Names inside a run directory.
const (
	MetadataFileName    = "metadata.yaml"
	LogDir              = "logs"
	LogFileName         = "master_log.txt"
	DetailedLogFileName = "master_log.json"
	LockFileName        = ".stagekit.lock"
)

// Date layouts.
const (
	// DayLayout formats run directory prefixes and production tags (YYYY_MM_DD).
	DayLayout = "2006_01_02"
	// TimestampLayout formats start_time in run metadata.
	TimestampLayout = "2006_01_02_15_04_05"
)
