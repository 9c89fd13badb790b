package mailer

type Service interface {
	SendCredentialAlert(toEmail, gateName, accountEmail, reason string) error
	SendTestAlert(toEmail, gateName string) error
}
