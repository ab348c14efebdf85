package service

import "errors"

// ErrInvalidState возвращается при попытке перехода из недопустимого статуса.
var (
	ErrInvalidState = errors.New("operation is not allowed in current status")
	// ErrValidation возвращается при некорректных входных данных запроса.
	ErrValidation = errors.New("validation failed")
	// ErrBelowMinimum возвращается, когда сумма заявки ниже минимума продукта.
	// Вызывающая сторона по этой ошибке направляет фермера в подбор совместного займа.
	ErrBelowMinimum = errors.New("amount is below product minimum")
	// ErrGroupNotMatched возвращается при подтверждении группы, не достигшей порога.
	ErrGroupNotMatched = errors.New("group has not reached the pooling threshold")
	// ErrNotGroupCreator возвращается, когда группу подтверждает не её создатель.
	ErrNotGroupCreator = errors.New("only the group creator may confirm the group")
)
