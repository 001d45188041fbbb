package domain

import "time"

// Role classifies a portal user. Anything above RoleUser can manage content.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Admin reports whether the role carries administrative rights.
func (r Role) Admin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// SuperAdmin reports whether the role can manage other admins.
func (r Role) SuperAdmin() bool {
	return r == RoleSuperAdmin
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleSuperAdmin
}

// Profile is the portal-side user row, keyed by the session subject id.
type Profile struct {
	ID                     string    `json:"id"`
	Email                  string    `json:"email"`
	Role                   Role      `json:"role"`
	PasswordChangeRequired bool      `json:"passwordChangeRequired"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// DefaultProfile is the minimal row written on the repair path when a session
// subject has no profile yet.
func DefaultProfile(id, email string, now time.Time) Profile {
	return Profile{
		ID:                     id,
		Email:                  email,
		Role:                   RoleUser,
		PasswordChangeRequired: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Session is the read-only reference handed out by the session service.
type Session struct {
	SubjectID string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// AuthorizationView is the single consistent client-side authorization state.
// Consumers receive snapshots and must treat them as immutable.
type AuthorizationView struct {
	HasSession              bool     `json:"hasSession"`
	Profile                 *Profile `json:"profile"`
	IsAdmin                 bool     `json:"isAdmin"`
	IsSuperAdmin            bool     `json:"isSuperAdmin"`
	PasswordChangeRequired  bool     `json:"passwordChangeRequired"`
	SessionServiceReachable bool     `json:"sessionServiceReachable"`
	ProfileServiceReachable bool     `json:"profileServiceReachable"`
}

// QuestionType distinguishes how answers are collected and judged.
type QuestionType string

const (
	QuestionSingleSelect QuestionType = "multiple_choice"
	QuestionMultiSelect  QuestionType = "check_all_that_apply"
	QuestionTrueFalse    QuestionType = "true_false"
)

// MultiSelect reports whether more than one option may be selected.
func (t QuestionType) MultiSelect() bool {
	return t == QuestionMultiSelect
}

// Option is a possible answer, displayed in DisplayOrder.
type Option struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Correct      bool   `json:"correct"`
	DisplayOrder int    `json:"displayOrder"`
}

// Question models a quiz or study-guide question with its options.
type Question struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Type        QuestionType `json:"type"`
	Explanation string       `json:"explanation"`
	Difficulty  string       `json:"difficulty"`
	Category    string       `json:"category"`
	Tags        []string     `json:"tags"`
	Options     []Option     `json:"options"`
}

// CorrectIndices returns the ascending option indices flagged correct.
func (q Question) CorrectIndices() []int {
	indices := make([]int, 0, len(q.Options))
	for i, opt := range q.Options {
		if opt.Correct {
			indices = append(indices, i)
		}
	}
	return indices
}

// CorrectSelection reports whether selected matches the correct set exactly:
// same size, same elements. Callers keep selected sorted ascending.
func (q Question) CorrectSelection(selected []int) bool {
	correct := q.CorrectIndices()
	if len(selected) != len(correct) {
		return false
	}
	for i, idx := range correct {
		if selected[i] != idx {
			return false
		}
	}
	return true
}

// AnswerState is the selected option set for one question.
// For single-select types the set holds at most one index.
type AnswerState struct {
	QuestionIndex   int   `json:"questionIndex"`
	SelectedIndices []int `json:"selectedIndices"`
}

// QuizAccessGrant is a one-shot token gating a quiz attempt.
type QuizAccessGrant struct {
	ID         string     `json:"id"`
	QuizID     string     `json:"quizId"`
	Token      string     `json:"token"`
	Expiration time.Time  `json:"expiration"`
	UsedAt     *time.Time `json:"usedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Verdict is the pass/fail outcome of a scored attempt.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Attribution identifies who took a quiz without tying the result to the
// auth state machine.
type Attribution struct {
	LDAP       string `json:"ldap"`
	Supervisor string `json:"supervisor"`
	Market     string `json:"market"`
}

// QuizResult is created exactly once per successful submission and is
// immutable thereafter.
type QuizResult struct {
	ID             string        `json:"id"`
	QuizID         string        `json:"quizId"`
	Attribution    Attribution   `json:"attribution"`
	Score          float64       `json:"score"`
	Verdict        Verdict       `json:"verdict"`
	Answers        []AnswerState `json:"answers"`
	TimeTaken      time.Duration `json:"timeTaken"`
	CompletedAt    time.Time     `json:"completedAt"`
	CertificateURL string        `json:"certificateUrl,omitempty"`
}

// GuideStatus is the publication state of a study guide.
type GuideStatus string

const (
	GuidePublished GuideStatus = "published"
	GuideDraft     GuideStatus = "draft"
	GuideArchived  GuideStatus = "archived"
)

// StudyGuide is browsable learning content built from question sets.
type StudyGuide struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Status      GuideStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// StudyProgress records one answered study-guide question.
type StudyProgress struct {
	ID         string    `json:"id"`
	GuideID    string    `json:"guideId"`
	UserID     string    `json:"userId"`
	QuestionID string    `json:"questionId"`
	Correct    bool      `json:"correct"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DashboardStats aggregates quiz results for the admin dashboard.
type DashboardStats struct {
	TotalQuizzes int     `json:"totalQuizzes"`
	PassRate     float64 `json:"passRate"`
	AverageScore float64 `json:"averageScore"`
	AverageTime  float64 `json:"averageTime"` // seconds
}

// ResultFilters narrows result listings for the dashboard.
type ResultFilters struct {
	Since time.Time
	Until time.Time
	LDAP  string
}
