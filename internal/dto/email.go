package dto

// EmailDigestArgs is the first argument of the email digest hook.
type EmailDigestArgs struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Period  string `json:"period" validate:"required,oneof=daily weekly"`
}
