package cfg

// DefaultPort is the control-connection listen port when none is given on
// the command line.
const DefaultPort = 8090

// DefaultCacheDir is the fixed cache directory name used by the original
// implementation; ombud keeps it as the default rather than making it
// mandatory, so existing invocations without --cache-dir keep working.
const DefaultCacheDir = "cache-ombud"

const DefaultLogFormat = "text"
const DefaultLogSeverity = "info"
