package validations

import (
	"context"

	domainInstance "github.com/AzielCF/az-wacrm/domains/instance"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateInstanceAction(ctx context.Context, request domainInstance.ActionRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Action, validation.Required, validation.In(
			domainInstance.ActionConnect,
			domainInstance.ActionReconnect,
			domainInstance.ActionDisconnect,
		).Error("must be one of connect, reconnect, disconnect")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
