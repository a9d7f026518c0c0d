package client

// FrameResult is the outcome of a process-frame submission. It is one of
// Recognized, Unknown, NoFace or FrameRejected.
type FrameResult interface {
	isFrameResult()
}

// Recognized means the face matched an enrolled user. Marked is false when
// the user was already marked present today.
type Recognized struct {
	UserID     string
	Name       string
	Confidence float64
	Marked     bool
}

// Unknown means a face was found but did not match anyone closely enough.
type Unknown struct {
	Confidence float64
}

// NoFace means the frame contained no detectable face.
type NoFace struct{}

// FrameRejected carries any other status the backend answered with.
type FrameRejected struct {
	Status  string
	Message string
}

func (Recognized) isFrameResult()    {}
func (Unknown) isFrameResult()       {}
func (NoFace) isFrameResult()        {}
func (FrameRejected) isFrameResult() {}

// SaveResult is the outcome of a save-image submission: Saved or SaveRejected.
type SaveResult interface {
	isSaveResult()
}

// Saved means the sample was stored. Count is the sample number on the server.
type Saved struct {
	Message string
	Count   int
}

// SaveRejected carries the backend's reason for refusing the sample.
type SaveRejected struct {
	Message string
}

func (Saved) isSaveResult()        {}
func (SaveRejected) isSaveResult() {}

// TrainResult is the outcome of a train call: Trained or TrainRejected.
type TrainResult interface {
	isTrainResult()
}

// Trained means the model was rebuilt.
type Trained struct {
	Message string
}

// TrainRejected carries the backend's reason for not training.
type TrainRejected struct {
	Message string
}

func (Trained) isTrainResult()       {}
func (TrainRejected) isTrainResult() {}

// AttendanceRecord is one row of today's attendance report.
type AttendanceRecord struct {
	UserID string
	Name   string
	Date   string
	Time   string
}

// User is one enrolled user.
type User struct {
	UserID string
	Name   string
}
