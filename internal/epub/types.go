package epub

import (
	"encoding/xml"
	"time"
)

// Language tags carried by paragraph records. The translated copy of a
// chapter interleaves target-tagged paragraphs with their source-tagged
// originals; an untranslated chapter is all source.
const (
	LangSource = "source"
	LangTarget = "target"
)

// CSS classes stamped onto paragraphs of a translated chapter. The
// extractor keys language tags off TransClass.
const (
	TransClass = "bw-trans"
	OrigClass  = "bw-orig"
)

type Book struct {
	ID          string       `json:"id"`
	FilePath    string       `json:"file_path"`
	TempDir     string       `json:"temp_dir"`
	Container   Container    `json:"container"`
	Package     Package      `json:"package"`
	Chapters    []ChapterRef `json:"chapters"`
	SourceLang  string       `json:"source_lang"`
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt time.Time    `json:"processed_at,omitempty"`
}

type Container struct {
	XMLName   xml.Name `xml:"container"`
	Version   string   `xml:"version,attr"`
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type Package struct {
	XMLName      xml.Name `xml:"package"`
	Version      string   `xml:"version,attr"`
	UniqueID     string   `xml:"unique-identifier,attr"`
	Metadata     Metadata `xml:"metadata"`
	Manifest     Manifest `xml:"manifest"`
	Spine        Spine    `xml:"spine"`
	Guide        Guide    `xml:"guide"`
	OriginalPath string   `json:"original_path"`
}

type Metadata struct {
	XMLName     xml.Name `xml:"metadata"`
	Title       string   `xml:"title"`
	Language    string   `xml:"language"`
	Identifier  string   `xml:"identifier"`
	Creator     string   `xml:"creator"`
	Publisher   string   `xml:"publisher"`
	Date        string   `xml:"date"`
	Description string   `xml:"description"`
}

type Manifest struct {
	XMLName xml.Name `xml:"manifest"`
	Items   []Item   `xml:"item"`
}

type Item struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type Spine struct {
	XMLName  xml.Name  `xml:"spine"`
	TOC      string    `xml:"toc,attr"`
	ItemRefs []ItemRef `xml:"itemref"`
}

type ItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type Guide struct {
	XMLName    xml.Name    `xml:"guide"`
	References []Reference `xml:"reference"`
}

type Reference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ChapterRef identifies one spine item. Chapter content stays on disk;
// the paragraph stream is produced on demand by Parser.Paragraphs.
type ChapterRef struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	FilePath     string `json:"file_path"`
	RelativePath string `json:"relative_path"`
	Order        int    `json:"order"`
	WordCount    int    `json:"word_count"`
	IsTranslated bool   `json:"is_translated"`
}

// ParagraphRecord is one entry of a chapter's paragraph stream as
// rendered. Index is dense and 0-based; Lang selects voice and rate
// downstream.
type ParagraphRecord struct {
	Text  string `json:"text"`
	Lang  string `json:"lang"`
	Index int    `json:"index"`
}
