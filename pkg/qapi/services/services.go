package services

import (
	"github.com/quatton/qfold/pkg/qapi/services/iam"
	"github.com/quatton/qfold/pkg/qapi/services/report"
)

type Services struct {
	IAM    *iam.IAMService
	Report *report.Service
}
