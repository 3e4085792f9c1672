package pipeline

// Stage identifies one of the pipeline checkpoints reported to
// observers, in execution order.
type Stage string

const (
	StageIntent   Stage = "intent"
	StageAcquire  Stage = "acquire"
	StageChunk    Stage = "chunk_embed"
	StageUpsert   Stage = "upsert"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StageCleanup  Stage = "cleanup"
)

// Observer receives synchronous progress callbacks at each pipeline
// stage. Implementations must be fast; the pipeline blocks on them.
type Observer interface {
	OnStage(requestID string, stage Stage, detail string)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(requestID string, stage Stage, detail string)

func (f ObserverFunc) OnStage(requestID string, stage Stage, detail string) {
	f(requestID, stage, detail)
}

type noopObserver struct{}

func (noopObserver) OnStage(string, Stage, string) {}
