package use_cases

import (
	"context"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	apperrors "karte/internal/shared_kernel/errors"
)

type getOpenAPISpecUseCase struct {
	readModel portsout.OpenAPISpecReadModel
}

func NewGetOpenAPISpecUseCase(readModel portsout.OpenAPISpecReadModel) portsin.GetOpenAPISpecUseCase {
	return &getOpenAPISpecUseCase{
		readModel: readModel,
	}
}

func (u *getOpenAPISpecUseCase) Execute(ctx context.Context, _ dto.GetOpenAPISpecQuery) (dto.OpenAPISpecOutput, *apperrors.AppError) {
	content, contentType, appErr := u.readModel.Read(ctx)
	if appErr != nil {
		return dto.OpenAPISpecOutput{}, appErr
	}

	return dto.OpenAPISpecOutput{
		Content:     content,
		ContentType: contentType,
	}, nil
}
