package core

import "time"

// Layer names the stage of the data flow a lineage record belongs to.
type Layer string

// Known layers. Other values are accepted.
const (
	LayerRaw       Layer = "raw"
	LayerIndicator Layer = "indicator"
)

// LineageRecord is one immutable entry of the data_lineage log.
type LineageRecord struct {
	ID                  string    `json:"id"`
	SourceTable         string    `json:"source_table"`
	TargetTable         string    `json:"target_table"`
	Rows                int64     `json:"rows"`
	Layer               Layer     `json:"layer"`
	TransformationQuery string    `json:"transformation_query"`
	CreatedAt           time.Time `json:"created_at"`
}

// MetadataMapping is the column-level provenance of an indicator.
type MetadataMapping struct {
	SourceTable        string `json:"source_table" yaml:"source_table"`
	SourceColumn       string `json:"source_column" yaml:"source_column"`
	TargetTable        string `json:"target_table" yaml:"target_table"`
	TargetColumn       string `json:"target_column" yaml:"target_column"`
	TransformationRule string `json:"transformation_rule" yaml:"transformation_rule"`
	DataType           string `json:"data_type" yaml:"data_type"`
	IsNullable         bool   `json:"is_nullable" yaml:"is_nullable"`
}

// Indicator is a saved query reassembled from its metadata mappings.
type Indicator struct {
	TargetTable        string            `json:"target_table"`
	Title              string            `json:"title"`
	TransformationRule string            `json:"transformation_rule"`
	Mappings           []MetadataMapping `json:"mappings"`
}

// SourceTables returns the distinct source tables in first-seen order.
func (i Indicator) SourceTables() []string {
	seen := make(map[string]struct{}, len(i.Mappings))
	var out []string
	for _, m := range i.Mappings {
		if _, ok := seen[m.SourceTable]; ok {
			continue
		}
		seen[m.SourceTable] = struct{}{}
		out = append(out, m.SourceTable)
	}
	return out
}
