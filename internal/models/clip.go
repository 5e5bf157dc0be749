package models

// ClipStatus represents the publication state of a clip document.
type ClipStatus string

const (
	// ClipStatusPending indicates the document exists but no job has
	// observed it yet.
	ClipStatusPending ClipStatus = "pending"
	// ClipStatusProcessing indicates a pipeline job is working on the clip.
	// StatusMessage carries the human-readable phase description.
	ClipStatusProcessing ClipStatus = "processing"
	// ClipStatusProcessed indicates the clip was published successfully.
	ClipStatusProcessed ClipStatus = "processed"
	// ClipStatusError indicates the job failed. StatusMessage carries the
	// error description.
	ClipStatusError ClipStatus = "error"
)

// IsTerminal returns true once no further job activity is expected.
func (s ClipStatus) IsTerminal() bool {
	return s == ClipStatusProcessed || s == ClipStatusError
}

// SourceKind discriminates the two supported audio source types.
type SourceKind string

const (
	// SourceRemoteURL is a remote video/audio page URL resolved and fetched
	// by the downloader.
	SourceRemoteURL SourceKind = "remote_url"
	// SourceStoredObject is an object already present in the object store.
	SourceStoredObject SourceKind = "stored_object"
)

// AudioSource identifies where a clip's input audio comes from. Exactly one
// interpretation of Locator applies, selected by Kind. Immutable once
// constructed; owned by the job for its duration.
type AudioSource struct {
	Kind    SourceKind `json:"kind"`
	Locator string     `json:"locator"`
}

// RemoteURL constructs a remote source.
func RemoteURL(url string) AudioSource {
	return AudioSource{Kind: SourceRemoteURL, Locator: url}
}

// StoredObject constructs a stored-object source.
func StoredObject(key string) AudioSource {
	return AudioSource{Kind: SourceStoredObject, Locator: key}
}

// TrimWindow describes the requested cut of the source media.
// A zero window (no start, no duration) means a pure transcode.
type TrimWindow struct {
	// StartSeconds is the offset into the source. Always >= 0.
	StartSeconds float64 `json:"start_seconds"`
	// DurationSeconds is the requested clip length. Zero means "to the end".
	DurationSeconds float64 `json:"duration_seconds"`
}

// IsZero returns true when no trimming was requested.
func (w TrimWindow) IsZero() bool {
	return w.StartSeconds == 0 && w.DurationSeconds == 0
}

// HasDuration returns true when the window bounds the clip length.
func (w TrimWindow) HasDuration() bool {
	return w.DurationSeconds > 0
}

// Clip is the backing document for one published audio clip.
type Clip struct {
	BaseModel

	// Title is a human-readable name for the clip.
	Title string `gorm:"size:255" json:"title,omitempty"`

	// SourceKind and SourceLocator persist the AudioSource union.
	SourceKind    SourceKind `gorm:"not null;size:20" json:"source_kind"`
	SourceLocator string     `gorm:"not null;size:2048" json:"source_locator"`

	// StartSeconds and DurationSeconds persist the trim window.
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`

	// IntroKey and OutroKey are optional object-store keys for clips
	// concatenated around the transcoded content.
	IntroKey string `gorm:"size:1024" json:"intro_key,omitempty"`
	OutroKey string `gorm:"size:1024" json:"outro_key,omitempty"`

	// OutputKey is the object-store key the published audio is written to.
	OutputKey string `gorm:"not null;size:1024" json:"output_key"`

	// Status tracks the job state machine; StatusMessage is the
	// human-readable phase or error description.
	Status        ClipStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`
	StatusMessage string     `gorm:"size:4096" json:"status_message,omitempty"`

	// Progress is the last global progress snapshot written back to the
	// document (0-100). The live value streams through the progress sink.
	Progress int `json:"progress"`
}

// TableName returns the table name for Clip.
func (Clip) TableName() string {
	return "clips"
}

// Source returns the tagged audio source for this clip.
func (c *Clip) Source() AudioSource {
	return AudioSource{Kind: c.SourceKind, Locator: c.SourceLocator}
}

// Trim returns the requested trim window for this clip.
func (c *Clip) Trim() TrimWindow {
	return TrimWindow{StartSeconds: c.StartSeconds, DurationSeconds: c.DurationSeconds}
}

// HasAuxClips returns true when the clip has an intro or outro to merge.
func (c *Clip) HasAuxClips() bool {
	return c.IntroKey != "" || c.OutroKey != ""
}
