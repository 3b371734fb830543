package collab

import "time"

// updateLog is a session's bounded, time-ordered journal of accepted
// updates. Not safe for concurrent use on its own; the owning session's
// mutex guards every call.
type updateLog struct {
	records []UpdateRecord
}

// append adds a record. Records arrive with non-decreasing timestamps
// (the session stamps them on arrival), so appending preserves order.
func (l *updateLog) append(rec UpdateRecord) {
	l.records = append(l.records, rec)
}

// since returns copies of all records with timestamp strictly greater
// than ts, in insertion order.
func (l *updateLog) since(ts int64) []UpdateRecord {
	var out []UpdateRecord
	for _, rec := range l.records {
		if rec.Timestamp > ts {
			cp := rec
			cp.Document = copyDocument(rec.Document)
			cp.Value = copyValue(rec.Value)
			out = append(out, cp)
		}
	}
	return out
}

// prune drops records older than cutoff. Records are timestamp-ordered,
// so everything before the first survivor goes.
func (l *updateLog) prune(cutoff time.Time) {
	cutoffMillis := cutoff.UnixMilli()
	keep := 0
	for keep < len(l.records) && l.records[keep].Timestamp < cutoffMillis {
		keep++
	}
	if keep == 0 {
		return
	}
	l.records = append([]UpdateRecord(nil), l.records[keep:]...)
}

func (l *updateLog) len() int {
	return len(l.records)
}
