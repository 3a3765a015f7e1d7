package keys

// Package keys centralizes Redis key construction for the progress mirror.
// It is kept in internal to avoid leaking key formats to public API.

func Progress(session string) string { return "pojie:{" + session + "}:progress" }
func Results(session string) string  { return "pojie:{" + session + "}:results" }

// Updates is the pub/sub channel carrying every published snapshot.
func Updates(session string) string { return "pojie:{" + session + "}:updates" }

// Session holds all precomputed keys for a session name to avoid repeated concatenations.
type Session struct {
	Progress string
	Results  string
	Updates  string
}

// For returns a set of precomputed keys for the provided session.
func For(session string) Session {
	prefix := "pojie:{" + session + "}:"
	return Session{
		Progress: prefix + "progress",
		Results:  prefix + "results",
		Updates:  prefix + "updates",
	}
}
