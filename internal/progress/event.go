// Package progress decodes the line protocol the resource-fetcher worker
// embeds in its output streams.
//
// A protocol line is the sentinel Prefix followed by a JSON object whose
// "type" member selects one of the Event variants:
//
//	>>>PROGRESS:{"type":"song_start","index":1,"total":12,"title":"Intro"}
//
// Every other line is ordinary worker output.
package progress

// Prefix marks a progress protocol line.
const Prefix = ">>>PROGRESS:"

type Kind string

const (
	KindAlbumStart    Kind = "album_start"
	KindSongStart     Kind = "song_start"
	KindSongComplete  Kind = "song_complete"
	KindAlbumComplete Kind = "album_complete"
	KindError         Kind = "error"
)

// Event is one decoded protocol message. The set of implementations is
// closed; consumers switch on the concrete type.
type Event interface {
	Kind() Kind
	// Fields returns the variant's members in wire order, without "type".
	Fields() []Field
	sealed()
}

// Field is a single named member of an event payload.
type Field struct {
	Name  string
	Value any
}

type AlbumStart struct {
	Title  string
	Source string
	Total  int
}

type SongStart struct {
	Index int
	Total int
	Title string
}

// SongComplete reports a finished item. Status is open-ended (success,
// failed, skipped, ...); Size is the number of bytes written.
type SongComplete struct {
	Index   int
	Title   string
	Status  string
	Size    uint64
	Message string
}

type AlbumComplete struct {
	Success int
	Failed  int
	Skipped int
	Total   int
}

type Error struct {
	Message string
}

func (AlbumStart) Kind() Kind    { return KindAlbumStart }
func (SongStart) Kind() Kind     { return KindSongStart }
func (SongComplete) Kind() Kind  { return KindSongComplete }
func (AlbumComplete) Kind() Kind { return KindAlbumComplete }
func (Error) Kind() Kind         { return KindError }

func (e AlbumStart) Fields() []Field {
	return []Field{
		{Name: "title", Value: e.Title},
		{Name: "source", Value: e.Source},
		{Name: "total", Value: e.Total},
	}
}

func (e SongStart) Fields() []Field {
	return []Field{
		{Name: "index", Value: e.Index},
		{Name: "total", Value: e.Total},
		{Name: "title", Value: e.Title},
	}
}

func (e SongComplete) Fields() []Field {
	return []Field{
		{Name: "index", Value: e.Index},
		{Name: "title", Value: e.Title},
		{Name: "status", Value: e.Status},
		{Name: "size", Value: e.Size},
		{Name: "message", Value: e.Message},
	}
}

func (e AlbumComplete) Fields() []Field {
	return []Field{
		{Name: "success", Value: e.Success},
		{Name: "failed", Value: e.Failed},
		{Name: "skipped", Value: e.Skipped},
		{Name: "total", Value: e.Total},
	}
}

func (e Error) Fields() []Field {
	return []Field{{Name: "message", Value: e.Message}}
}

func (AlbumStart) sealed()    {}
func (SongStart) sealed()     {}
func (SongComplete) sealed()  {}
func (AlbumComplete) sealed() {}
func (Error) sealed()         {}
