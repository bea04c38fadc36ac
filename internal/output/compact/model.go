package compact

type AlbumLifecycle string

const (
	AlbumLifecycleIdle     AlbumLifecycle = "idle"
	AlbumLifecycleRunning  AlbumLifecycle = "running"
	AlbumLifecycleFinished AlbumLifecycle = "finished"
)

type SongLifecycle string

const (
	SongLifecycleIdle        SongLifecycle = "idle"
	SongLifecycleDownloading SongLifecycle = "downloading"
	SongLifecycleDone        SongLifecycle = "done"
	SongLifecycleSkipped     SongLifecycle = "skipped"
	SongLifecycleFailed      SongLifecycle = "failed"
)

type AlbumProgress struct {
	Title     string
	Source    string
	Lifecycle AlbumLifecycle
	Total     int
	Completed int
	Succeeded int
	Failed    int
	Skipped   int
}

type SongProgress struct {
	Index     int
	Title     string
	Lifecycle SongLifecycle
}

type GlobalProgress struct {
	Total     int
	Completed int
}

type ProgressModel struct {
	Album  AlbumProgress
	Song   SongProgress
	Global GlobalProgress
}
