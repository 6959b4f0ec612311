package utils

import (
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/sirupsen/logrus"
)

type ResponseData struct {
	Status   int      `json:"status"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Results  any      `json:"results,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PanicIfNeeded hands err to the recovery middleware, which renders it.
func PanicIfNeeded(err any) {
	if err == nil {
		return
	}
	if e, ok := err.(error); ok {
		if generic, ok := pkgError.AsGeneric(e); ok {
			panic(generic)
		}
		logrus.Errorf("[REST] %v", e)
		panic(pkgError.InternalServerError(e.Error()))
	}
	panic(err)
}
