package hermes

const (
	StreamName   = "SADDLESUM_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectRunCompleted(runID string) string { return "saddlesum.run." + runID + ".completed" }
func SubjectRunFailed(runID string) string    { return "saddlesum.run." + runID + ".failed" }

func SubjectDatabaseImported(name string) string { return "saddlesum.database." + name + ".imported" }
func SubjectDatabaseDeleted(name string) string  { return "saddlesum.database." + name + ".deleted" }
