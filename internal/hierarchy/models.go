// Package hierarchy is the read model for the content tree:
// Course → Module → {Assignment, Quiz} → Submission/Attempt, plus the
// many-to-many Course↔Class and Assignment↔Class targeting sets. Tree
// edges are immutable foreign-key ids; targeting edges are set-valued id
// fields resolved purely through indexed queries.
package hierarchy

// Collection names in the document store.
const (
	CollCourses          = "courses"
	CollModules          = "modules"
	CollAssignments      = "assignments"
	CollQuizzes          = "quizzes"
	CollClasses          = "classes"
	CollUsers            = "users"
	CollSubmissions      = "submissions"
	CollQuizSummaries    = "quizAttempts"
	CollAttempts         = "attempts"
	CollEssays           = "essaySubmissions"
	CollAssignmentGrades = "assignmentGrades"
)

type Course struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Archived        bool     `json:"archived"`
	ArchivedAt      int64    `json:"archivedAt,omitempty"` // unix seconds, 0 = never archived
	AssignedClasses []string `json:"assignedClasses"`
	CreatedAt       int64    `json:"createdAt"`
	UpdatedAt       int64    `json:"updatedAt"`
}

type Module struct {
	ID           string `json:"id"`
	CourseID     string `json:"courseId"` // owning course, immutable
	ModuleNumber int    `json:"moduleNumber"`
	Title        string `json:"title"`
	Archived     bool   `json:"archived"`
	UpdatedAt    int64  `json:"updatedAt"`
}

type Assignment struct {
	ID        string   `json:"id"`
	CourseID  string   `json:"courseId"`
	ModuleID  string   `json:"moduleId,omitempty"` // empty: owned directly by the course
	ClassIDs  []string `json:"classIds"`           // empty: visible to the whole course
	Title     string   `json:"title"`
	Archived  bool     `json:"archived"`
	PublishAt int64    `json:"publishAt"`
	DueAt     int64    `json:"dueAt,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}

type Quiz struct {
	ID           string   `json:"id"`
	CourseID     string   `json:"courseId"`
	ModuleID     string   `json:"moduleId,omitempty"`
	ClassIDs     []string `json:"classIds"`
	Title        string   `json:"title"`
	Archived     bool     `json:"archived"`
	PublishAt    int64    `json:"publishAt"`
	DueAt        int64    `json:"dueAt,omitempty"`
	AttemptLimit int      `json:"attemptLimit,omitempty"`
	UpdatedAt    int64    `json:"updatedAt"`
}

type Class struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

type User struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Role                   string   `json:"role"` // "teacher" or "student"
	PasswordHash           string   `json:"passwordHash,omitempty"`
	ClassIDs               []string `json:"classIds"` // class enrollments
	AverageQuizScore       int      `json:"averageQuizScore"`
	AverageAssignmentGrade int      `json:"averageAssignmentGrade"`
	GradedAssignmentsCount int      `json:"gradedAssignmentsCount"`
}

// Submission is keyed per (assignment, student); see SubmissionID.
type Submission struct {
	ID           string   `json:"id"`
	AssignmentID string   `json:"assignmentId"`
	StudentID    string   `json:"studentId"`
	Grade        *float64 `json:"grade"`
	Graded       bool     `json:"graded"`
	Feedback     string   `json:"feedback,omitempty"`
	SubmittedAt  int64    `json:"submittedAt"`
}

// QuizSummary is the per-(user, quiz) roll-up owning the individual
// Attempt documents. Best-score fields are nil until a recompute has run
// for at least one attempt.
type QuizSummary struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	QuizID            string `json:"quizId"`
	AttemptsUsed      int    `json:"attemptsUsed"`
	BestPercent       *int   `json:"bestPercent"`
	BestGradedPercent *int   `json:"bestGradedPercent"`
	LastScorePercent  *int   `json:"lastScorePercent"`
	UpdatedAt         int64  `json:"updatedAt"`
}

type Attempt struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	QuizID        string  `json:"quizId"`
	AutoScore     float64 `json:"autoScore"`
	AutoTotal     float64 `json:"autoTotal"`
	AutoPercent   int     `json:"autoPercent"`
	Percent       *int    `json:"percent"` // combined auto + essay, nil before first recompute
	GradedScore   float64 `json:"gradedScore"`
	GradedTotal   float64 `json:"gradedTotal"`
	GradedPercent *int    `json:"gradedPercent"`
	CreatedAt     int64   `json:"createdAt"`
}

type EssayStatus string

const (
	EssayPending     EssayStatus = "pending"
	EssayGraded      EssayStatus = "graded"
	EssayNeedsReview EssayStatus = "needs_review"
)

type EssaySubmission struct {
	ID             string      `json:"id"`
	AttemptRefPath string      `json:"attemptRefPath"`
	UserID         string      `json:"userId"`
	QuizID         string      `json:"quizId"`
	QuestionID     string      `json:"questionId"`
	Status         EssayStatus `json:"status"`
	Score          float64     `json:"score"`
	MaxScore       float64     `json:"maxScore,omitempty"` // 0 means unset; graders default it to 10
	Text           string      `json:"text,omitempty"`
}

// AssignmentGrade mirrors a graded Submission per (user, assignment) so
// per-student averages never re-query submission subcollections.
type AssignmentGrade struct {
	ID           string   `json:"id"`
	UserID       string   `json:"userId"`
	AssignmentID string   `json:"assignmentId"`
	Grade        *float64 `json:"grade"` // nil: graded without a numeric grade
	Feedback     string   `json:"feedback,omitempty"`
	GradedBy     string   `json:"gradedBy,omitempty"`
	GradedAt     int64    `json:"gradedAt"`
}

// SubmissionID keys a submission under its assignment.
func SubmissionID(assignmentID, studentID string) string {
	return assignmentID + "|" + studentID
}

// SummaryID keys the quiz roll-up per (user, quiz).
func SummaryID(userID, quizID string) string {
	return userID + "|" + quizID
}

// GradeID keys the assignment-grade mirror per (user, assignment).
func GradeID(userID, assignmentID string) string {
	return userID + "|" + assignmentID
}

// AttemptPath is the reference form essay submissions store.
func AttemptPath(attemptID string) string {
	return CollAttempts + "/" + attemptID
}
