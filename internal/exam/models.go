package exam

// Attempt status. "In progress" is the only open state; a submitted
// attempt is terminal and immutable.
const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
)

// Proctoring violation types reported by the exam portal.
const (
	ViolationRightClick     = "right_click"
	ViolationCopyPaste      = "copy_paste"
	ViolationDevTools       = "dev_tools"
	ViolationTabSwitch      = "tab_switch"
	ViolationBackButton     = "back_button"
	ViolationFullscreenExit = "fullscreen_exit"
	ViolationOther          = "other"
)

var knownViolationTypes = map[string]bool{
	ViolationRightClick:     true,
	ViolationCopyPaste:      true,
	ViolationDevTools:       true,
	ViolationTabSwitch:      true,
	ViolationBackButton:     true,
	ViolationFullscreenExit: true,
	ViolationOther:          true,
}

// NormalizeViolationType maps unknown client values to "other".
func NormalizeViolationType(t string) string {
	if knownViolationTypes[t] {
		return t
	}
	return ViolationOther
}

// Exam is the per-course configuration. Exactly one per course.
// Duration, passing score and max attempts are administrator-mutable;
// attempts snapshot what they need at creation.
type Exam struct {
	ID              string `json:"id"`
	CourseID        string `json:"course_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	PassingScore    int    `json:"passing_score"`
	MaxAttempts     int    `json:"max_attempts"`
	IsActive        bool   `json:"is_active"`
	UpdatedAt       int64  `json:"updated_at"`
}

type Question struct {
	ID            string `json:"id"`
	ExamID        string `json:"exam_id"`
	Text          string `json:"question_text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer string `json:"-"` // never serialized to exam takers
	Explanation   string `json:"explanation,omitempty"`
	Position      int    `json:"order"`
	IsActive      bool   `json:"is_active"`
}

// QuestionView is the student-facing projection: no correct answer,
// plus whatever the student previously selected.
type QuestionView struct {
	ID       string `json:"id"`
	Position int    `json:"order"`
	Text     string `json:"question_text"`
	OptionA  string `json:"option_a"`
	OptionB  string `json:"option_b"`
	OptionC  string `json:"option_c"`
	OptionD  string `json:"option_d"`
	Selected string `json:"selected_answer"`
}

type Attempt struct {
	ID               string   `json:"id"`
	AccessID         string   `json:"access_id"`
	Number           int      `json:"attempt_number"`
	Status           string   `json:"status"`
	StartedAt        int64    `json:"started_at"`
	SubmittedAt      *int64   `json:"submitted_at,omitempty"`
	TimeTakenSeconds *int     `json:"time_taken_seconds,omitempty"`
	IsPassed         *bool    `json:"is_passed"` // nil until graded
	ScorePercentage  *float64 `json:"score_percentage,omitempty"`
	CorrectAnswers   int      `json:"correct_answers"`
	TotalQuestions   int      `json:"total_questions"` // snapshot at creation
	HasViolations    bool     `json:"has_violations"`
	ViolationCount   int      `json:"violation_count"`
	DurationMinutes  int      `json:"duration_minutes"` // snapshot at creation
}

func (a Attempt) Submitted() bool { return a.Status == StatusSubmitted }

type Violation struct {
	AttemptID     string `json:"attempt_id"`
	Type          string `json:"violation_type"`
	Count         int    `json:"violation_count"`
	Description   string `json:"description,omitempty"`
	AutoSubmitted bool   `json:"auto_submitted"`
	RecordedAt    int64  `json:"recorded_at"`
}

// Eligibility mirrors the check-eligibility API payload.
type Eligibility struct {
	Eligible          bool `json:"eligible"`
	AllWatched        bool `json:"all_watched"`
	ExamActive        bool `json:"exam_active"`
	RemainingAttempts int  `json:"remaining_attempts"`
	AlreadyPassed     bool `json:"already_passed"`
	AttemptsUsed      int  `json:"attempts_used"`
	AttemptsAllowed   int  `json:"attempts_allowed"`
}

// TimeLeft is the poll payload. Remaining is computed from the server
// clock against the attempt's own duration snapshot; the exam fields
// are live configuration so clients can detect roster changes.
type TimeLeft struct {
	RemainingSeconds   int    `json:"remaining_seconds"`
	IsSubmitted        bool   `json:"is_submitted"`
	ExamActive         bool   `json:"exam_active"`
	DurationMinutes    int    `json:"duration_minutes"`
	QuestionsCount     int    `json:"questions_count"`
	QuestionsUpdatedAt *int64 `json:"questions_updated_at,omitempty"`
}

// Result is what a submit returns.
type Result struct {
	ScorePercentage float64 `json:"score_percentage"`
	IsPassed        bool    `json:"is_passed"`
	CorrectAnswers  int     `json:"correct_answers"`
	TotalQuestions  int     `json:"total_questions"`
}

// ViolationOutcome reports how a violation record was handled. A plain
// record carries the recorded type; a forced submission carries the
// auto-submit flag and a user-facing message instead.
type ViolationOutcome struct {
	Success           bool   `json:"success"`
	ViolationRecorded bool   `json:"violation_recorded,omitempty"`
	ViolationType     string `json:"violation_type,omitempty"`
	AutoSubmitted     bool   `json:"auto_submitted,omitempty"`
	Message           string `json:"message,omitempty"`
}

// AnswerDetail is one graded line in the results view.
type AnswerDetail struct {
	QuestionID  string `json:"question_id"`
	Position    int    `json:"order"`
	Text        string `json:"question_text"`
	OptionA     string `json:"option_a"`
	OptionB     string `json:"option_b"`
	OptionC     string `json:"option_c"`
	OptionD     string `json:"option_d"`
	Selected    string `json:"selected_answer"`
	Correct     string `json:"correct_answer"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation,omitempty"`
}

// ResultsView carries the display-attempt substitution: when the
// current attempt has violations on record, answer detail comes from
// the last prior violation-free submitted attempt instead.
type ResultsView struct {
	Attempt                Attempt        `json:"attempt"`
	DisplayAttemptID       string         `json:"display_attempt_id"`
	DisplayAttemptNumber   int            `json:"display_attempt_number"`
	ShowingPreviousAttempt bool           `json:"showing_previous_attempt"`
	Answers                []AnswerDetail `json:"answers"`
	Violations             []Violation    `json:"violations"`
}

// AttemptSummary is one row in a user's cross-course results list.
type AttemptSummary struct {
	AttemptID       string   `json:"attempt_id"`
	CourseID        string   `json:"course_id"`
	CourseName      string   `json:"course_name"`
	Number          int      `json:"attempt_number"`
	SubmittedAt     *int64   `json:"submitted_at,omitempty"`
	ScorePercentage *float64 `json:"score_percentage,omitempty"`
	IsPassed        *bool    `json:"is_passed"`
	HasViolations   bool     `json:"has_violations"`
}

// ExamUpsert is the administrative write shape for exam configuration.
type ExamUpsert struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
	PassingScore    int             `json:"passing_score"`
	MaxAttempts     int             `json:"max_attempts"`
	IsActive        bool            `json:"is_active"`
	Questions       []QuestionInput `json:"questions"`
}

type QuestionInput struct {
	ID            string `json:"id,omitempty"` // blank: new question
	Text          string `json:"question_text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation"`
	Position      int    `json:"order"`
}
