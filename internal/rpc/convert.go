package rpc

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/luckyComet55/junction-control/internal/journal"
	"github.com/luckyComet55/junction-control/internal/junction"
)

// Reply is the outcome of a request call.
type Reply struct {
	Result  string
	Message string
}

func (r Reply) Accepted() bool {
	return r.Result == junction.Accepted.String()
}

func replyStruct(result junction.Result, message string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"result":  result.String(),
		"message": message,
	})
}

func replyFromStruct(st *structpb.Struct) Reply {
	f := st.GetFields()
	return Reply{
		Result:  f["result"].GetStringValue(),
		Message: f["message"].GetStringValue(),
	}
}

func signalList(signals [2]junction.Signal) []any {
	out := make([]any, 0, len(signals))
	for _, s := range signals {
		out = append(out, string(s))
	}
	return out
}

func snapshotStruct(s junction.Snapshot) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"seq":         s.Seq,
		"mode":        s.Mode.String(),
		"roads":       signalList(s.Roads),
		"crossings":   signalList(s.Crossings),
		"phase":       string(s.Phase),
		"sequence_id": s.SequenceID,
		"at":          s.At.UTC().Format(time.RFC3339Nano),
	})
}

func signalsFromList(name string, v *structpb.Value) ([2]junction.Signal, error) {
	var out [2]junction.Signal
	values := v.GetListValue().GetValues()
	if len(values) != len(out) {
		return out, fmt.Errorf("snapshot %s: want %d signals, got %d", name, len(out), len(values))
	}
	for i, sv := range values {
		out[i] = junction.Signal(sv.GetStringValue())
	}
	return out, nil
}

// SnapshotFromStruct decodes a snapshot sent by GetState or Watch.
func SnapshotFromStruct(st *structpb.Struct) (junction.Snapshot, error) {
	f := st.GetFields()
	if f == nil {
		return junction.Snapshot{}, errors.New("snapshot: empty message")
	}

	roads, err := signalsFromList("roads", f["roads"])
	if err != nil {
		return junction.Snapshot{}, err
	}
	crossings, err := signalsFromList("crossings", f["crossings"])
	if err != nil {
		return junction.Snapshot{}, err
	}
	mode, err := junction.ParseMode(f["mode"].GetStringValue())
	if err != nil {
		return junction.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, f["at"].GetStringValue())
	if err != nil {
		return junction.Snapshot{}, fmt.Errorf("snapshot time: %w", err)
	}

	return junction.Snapshot{
		Seq:        uint64(f["seq"].GetNumberValue()),
		Mode:       mode,
		Roads:      roads,
		Crossings:  crossings,
		Phase:      junction.Phase(f["phase"].GetStringValue()),
		SequenceID: f["sequence_id"].GetStringValue(),
		At:         at,
	}, nil
}

// recentLog is how many journal entries GetStats returns.
const recentLog = 10

// StatsReply is the decoded GetStats response.
type StatsReply struct {
	journal.Stats
	Uptime time.Duration
	Recent []journal.Entry
}

func statsStruct(st journal.Stats, now time.Time, recent []journal.Entry) (*structpb.Struct, error) {
	log := make([]any, 0, len(recent))
	for _, e := range recent {
		log = append(log, map[string]any{
			"time":     e.Time.UTC().Format(time.RFC3339),
			"kind":     string(e.Kind),
			"detail":   e.Detail,
			"outcome":  e.Outcome,
			"rejected": e.Rejected,
		})
	}
	return structpb.NewStruct(map[string]any{
		"total":          st.Total,
		"road":           st.Road,
		"crossing":       st.Crossing,
		"emergency":      st.Emergency,
		"rejected":       st.Rejected,
		"started_at":     st.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": st.Uptime(now).Seconds(),
		"log":            log,
	})
}

func statsFromStruct(s *structpb.Struct) StatsReply {
	f := s.GetFields()
	started, _ := time.Parse(time.RFC3339, f["started_at"].GetStringValue())

	out := StatsReply{
		Stats: journal.Stats{
			Total:     int(f["total"].GetNumberValue()),
			Road:      int(f["road"].GetNumberValue()),
			Crossing:  int(f["crossing"].GetNumberValue()),
			Emergency: int(f["emergency"].GetNumberValue()),
			Rejected:  int(f["rejected"].GetNumberValue()),
			StartedAt: started,
		},
		Uptime: time.Duration(f["uptime_seconds"].GetNumberValue() * float64(time.Second)),
	}
	for _, v := range f["log"].GetListValue().GetValues() {
		ef := v.GetStructValue().GetFields()
		at, _ := time.Parse(time.RFC3339, ef["time"].GetStringValue())
		out.Recent = append(out.Recent, journal.Entry{
			Time:     at,
			Kind:     journal.Kind(ef["kind"].GetStringValue()),
			Detail:   ef["detail"].GetStringValue(),
			Outcome:  ef["outcome"].GetStringValue(),
			Rejected: ef["rejected"].GetBoolValue(),
		})
	}
	return out
}
