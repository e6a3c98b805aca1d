package archive

// VideoStats counts per-run video outcomes.
type VideoStats struct {
	Skipped     int `json:"skipped"`
	Processed   int `json:"processed"`
	StillLive   int `json:"still_live"`
	NoChat      int `json:"no_chat"`
	Unavailable int `json:"unavailable"`
	Errors      int `json:"errors"`
}

// ChatStats counts messages and users for one video's ingestion.
type ChatStats struct {
	TotalMessages    int
	NewMessages      int
	ExistingMessages int
	NewUserIDs       int
	ExistUserIDs     map[string]bool
	InvalidUsers     int
}

// Merge adds s into global. The existing-user set unions rather than counts
// so a returning user seen on several videos counts once per run.
func (s *ChatStats) Merge(global *ChatStats) {
	global.TotalMessages += s.TotalMessages
	global.NewMessages += s.NewMessages
	global.ExistingMessages += s.ExistingMessages
	global.NewUserIDs += s.NewUserIDs
	global.InvalidUsers += s.InvalidUsers
	if len(s.ExistUserIDs) > 0 {
		if global.ExistUserIDs == nil {
			global.ExistUserIDs = make(map[string]bool)
		}
		for id := range s.ExistUserIDs {
			global.ExistUserIDs[id] = true
		}
	}
}

// RunStats aggregates one full synchronization pass.
type RunStats struct {
	Videos VideoStats
	Chat   ChatStats
}

func (r *RunStats) Record(o Outcome) {
	switch o {
	case Skipped:
		r.Videos.Skipped++
	case Processed:
		r.Videos.Processed++
	case StillLive:
		r.Videos.StillLive++
	case NoChat:
		r.Videos.NoChat++
	case Unavailable:
		r.Videos.Unavailable++
	case Error:
		r.Videos.Errors++
	}
}
