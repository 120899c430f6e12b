package model

type FileType string

const (
	FileTypeAppropriations   FileType = "A"
	FileTypeProgramActivity  FileType = "B"
	FileTypeAwardFinancial   FileType = "C"
	FileTypeAwardProcurement FileType = "D1"
	FileTypeAward            FileType = "D2"
	FileTypeExecutiveComp    FileType = "E"
	FileTypeSubAward         FileType = "F"
)

// GeneratedFileTypes are the derived files produced by the broker rather than uploaded.
var GeneratedFileTypes = []FileType{
	FileTypeAwardProcurement,
	FileTypeAward,
	FileTypeExecutiveComp,
	FileTypeSubAward,
}

var fileTypeNames = map[FileType]string{
	FileTypeAppropriations:   "appropriations",
	FileTypeProgramActivity:  "program_activity",
	FileTypeAwardFinancial:   "award_financial",
	FileTypeAwardProcurement: "award_procurement",
	FileTypeAward:            "award",
	FileTypeExecutiveComp:    "executive_compensation",
	FileTypeSubAward:         "sub_award",
}

// Name returns the long name used in file names and status payloads.
func (f FileType) Name() string {
	return fileTypeNames[f]
}

// IsDateRanged reports whether generation is keyed by an agency and a date range.
// Those are the only file types going through the generation cache.
func (f FileType) IsDateRanged() bool {
	return f == FileTypeAwardProcurement || f == FileTypeAward
}

// HasValidation reports whether a generated file is followed by a record validation job.
func (f FileType) HasValidation() bool {
	return f == FileTypeAward
}
