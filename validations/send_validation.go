package validations

import (
	"context"
	"regexp"
	"strings"

	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{8,20}$`)

func ValidateSendMessage(ctx context.Context, request domainMessage.SendMessageRequest) error {
	hasMedia := strings.TrimSpace(request.MediaURL) != ""

	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required, validation.Match(phonePattern).Error("must be a phone number")),
		validation.Field(&request.Text, validation.When(!hasMedia, validation.Required.Error("text or media_url is required")), validation.Length(0, 4096)),
		validation.Field(&request.MediaURL, is.URL),
		validation.Field(&request.MediaType, validation.When(hasMedia, validation.Required, validation.In(
			string(domainGateway.MediaImage),
			string(domainGateway.MediaVideo),
			string(domainGateway.MediaAudio),
			string(domainGateway.MediaDocument),
		))),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
