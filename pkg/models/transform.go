package models

// TransformKind names one of the closed set of field operations.
type TransformKind string

const (
	TransformConcat    TransformKind = "concat"
	TransformRename    TransformKind = "rename"
	TransformCopy      TransformKind = "copy"
	TransformUppercase TransformKind = "uppercase"
	TransformLowercase TransformKind = "lowercase"
	TransformTrim      TransformKind = "trim"
	TransformSplit     TransformKind = "split"
	TransformReplace   TransformKind = "replace"
	TransformPrefix    TransformKind = "prefix"
	TransformSuffix    TransformKind = "suffix"
	TransformToNumber  TransformKind = "to_number"
	TransformExtract   TransformKind = "extract"
	TransformMerge     TransformKind = "merge"
)

// TransformOp is one declarative field operation. Which options are required
// depends on Kind; an operation missing them is skipped.
type TransformOp struct {
	Kind TransformKind `yaml:"type" json:"type"`
	// Field is the (possibly dotted) input field
	Field string `yaml:"field" json:"field"`
	// Fields are the inputs of concat and merge
	Fields []string `yaml:"fields" json:"fields"`
	// Target is the output field; defaults to Field when empty
	Target string `yaml:"target" json:"target"`
	// Separator is the concat glue or the split delimiter
	Separator *string `yaml:"separator" json:"separator"`
	// Pattern is the regular expression for replace and extract
	Pattern string `yaml:"pattern" json:"pattern"`
	// Replacement is the replace substitution (may reference $1 groups)
	Replacement *string `yaml:"replacement" json:"replacement"`
	// Value is the literal for prefix and suffix
	Value *string `yaml:"value" json:"value"`
	// Group is the capture group used by extract (default 1, or 0 without groups)
	Group *int `yaml:"group" json:"group"`
	// Start and End slice the field by rune index for extract
	Start *int `yaml:"start" json:"start"`
	End   *int `yaml:"end" json:"end"`
}

// Output returns the field the operation writes to.
func (op TransformOp) Output() string {
	if op.Target != "" {
		return op.Target
	}
	return op.Field
}
