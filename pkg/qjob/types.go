// Package qjob builds AlphaFold3 job descriptions from transcription-factor
// records and writes them into the batch layout.
package qjob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quatton/qfold/pkg/qerr"
)

const (
	Dialect = "alphafold3"
	Version = 1
)

// Kind tags the variant of a SequenceEntity.
type Kind string

const (
	KindProtein Kind = "protein"
	KindDNA     Kind = "dna"
)

// Chain holds the fields shared by every entity variant. Extra keeps any
// other field (unpairedMsa, pairedMsa, templates, modifications, ...) as raw
// JSON so that re-emitting the chain does not alter it.
type Chain struct {
	ID       string
	Sequence string
	Extra    map[string]json.RawMessage
}

// MarshalJSON writes sequence and id first, then the extra fields in key order.
func (c Chain) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seq, _ := json.Marshal(c.Sequence)
	id, _ := json.Marshal(c.ID)
	buf.WriteString(`"sequence":`)
	buf.Write(seq)
	buf.WriteString(`,"id":`)
	buf.Write(id)

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, _ := json.Marshal(k)
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		raw := c.Extra[k]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Chain{}
	if raw, ok := fields["sequence"]; ok {
		if err := json.Unmarshal(raw, &c.Sequence); err != nil {
			return fmt.Errorf("sequence: %w", err)
		}
		delete(fields, "sequence")
	}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &c.ID); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		delete(fields, "id")
	}
	if len(fields) > 0 {
		c.Extra = fields
	}
	return nil
}

// SequenceEntity is one chain of a job: exactly one of Protein or DNA is set.
type SequenceEntity struct {
	Protein *Chain `json:"protein,omitempty"`
	DNA     *Chain `json:"dna,omitempty"`
}

// ProteinEntity returns a protein entity without auxiliary data.
func ProteinEntity(id, sequence string) SequenceEntity {
	return SequenceEntity{Protein: &Chain{ID: id, Sequence: sequence}}
}

// DNAEntity returns a nucleic-acid entity.
func DNAEntity(id, sequence string) SequenceEntity {
	return SequenceEntity{DNA: &Chain{ID: id, Sequence: sequence}}
}

func (e SequenceEntity) Kind() Kind {
	if e.Protein != nil {
		return KindProtein
	}
	return KindDNA
}

func (e SequenceEntity) chain() *Chain {
	if e.Protein != nil {
		return e.Protein
	}
	return e.DNA
}

func (e SequenceEntity) ID() string {
	if c := e.chain(); c != nil {
		return c.ID
	}
	return ""
}

func (e SequenceEntity) Sequence() string {
	if c := e.chain(); c != nil {
		return c.Sequence
	}
	return ""
}

// HasData reports whether a protein entity carries pipeline output fields.
func (e SequenceEntity) HasData() bool {
	return e.Protein != nil && len(e.Protein.Extra) > 0
}

// JobRequest is one unit of submitted work, serialised as the tool's input JSON.
type JobRequest struct {
	Name       string           `json:"name"`
	ModelSeeds []int            `json:"modelSeeds"`
	Sequences  []SequenceEntity `json:"sequences"`
	Dialect    string           `json:"dialect"`
	Version    int              `json:"version"`

	// OutputDir is the job directory; derived from the layout, never serialised.
	OutputDir string `json:"-"`
}

// Validate checks the entity invariants: ids unique, sequences non-empty,
// exactly one variant per entity.
func (j JobRequest) Validate() error {
	if j.Name == "" {
		return qerr.Newf(qerr.CodeMissingInput, "job has no name")
	}
	if len(j.Sequences) == 0 {
		return qerr.Newf(qerr.CodeMissingInput, "job %s has no sequences", j.Name)
	}
	seen := make(map[string]bool, len(j.Sequences))
	for i, e := range j.Sequences {
		if (e.Protein == nil) == (e.DNA == nil) {
			return qerr.Newf(qerr.CodeParseError, "job %s: entity %d must be exactly one of protein or dna", j.Name, i)
		}
		if e.Sequence() == "" {
			return qerr.Newf(qerr.CodeMissingInput, "job %s: entity %q has an empty sequence", j.Name, e.ID())
		}
		if seen[e.ID()] {
			return qerr.Newf(qerr.CodeParseError, "job %s: duplicate entity id %q", j.Name, e.ID())
		}
		seen[e.ID()] = true
	}
	return nil
}

// DecodeJobRequest parses a job description.
func DecodeJobRequest(data []byte) (JobRequest, error) {
	var j JobRequest
	if err := json.Unmarshal(data, &j); err != nil {
		return JobRequest{}, qerr.New(qerr.CodeParseError, fmt.Errorf("decoding job description: %w", err))
	}
	return j, nil
}
