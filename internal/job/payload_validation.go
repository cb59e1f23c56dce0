package job

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/goqueue/common"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/middleware"
)

var validate = validator.New()

// parseArgs decodes a JSON argument list. Missing input yields nil.
func parseArgs(raw json.RawMessage) (models.Args, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	args, err := models.ParseArgs(raw)
	if err != nil {
		return nil, common.Errf(http.StatusBadRequest, "args must be a JSON array")
	}
	return args, nil
}

// validateHookArgs checks the arguments of the built-in hooks. Other hooks
// accept any list.
func validateHookArgs(hook string, args models.Args) error {
	switch hook {
	case config.HookEmailDigest:
		return validatePayload[dto.EmailDigestArgs](args, true)
	case config.HookLicenseCheck:
		return validatePayload[dto.LicenseCheckArgs](args, true)
	case config.HookPruneLogs:
		return validatePayload[dto.PruneLogsArgs](args, false)
	}
	return nil
}

func validatePayload[T any](args models.Args, required bool) error {
	if len(args) == 0 {
		if required {
			return common.Errf(http.StatusBadRequest, "args must contain one object")
		}
		return nil
	}

	var payload T
	if err := args.Decode(0, &payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid payload format",
		}
	}

	if err := validate.Struct(payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Message: "payload validation failed",
			Fields:  middleware.FormatValidationErrors(err),
		}
	}

	return nil
}
