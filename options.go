package pojie

type options struct {
	cursor int
	tip    string
}

// Option is a function that configures a target during Submit.
type Option func(*options)

// StartAt resumes a target from the given candidate index.
func StartAt(cursor int) Option {
	return func(o *options) {
		o.cursor = cursor
	}
}

// WithTip sets the initial progress tip shown before the first attempt.
func WithTip(tip string) Option {
	return func(o *options) {
		o.tip = tip
	}
}
