package infra

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

type SESSender struct {
	client SESAPI
	from   string
}

func NewSESSender(client SESAPI, fromEmail, fromName string) EmailSender {
	from := (&mail.Address{Name: fromName, Address: fromEmail}).String()
	return &SESSender{client: client, from: from}
}

func (s *SESSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	charset := aws.String("UTF-8")
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: charset},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: charset},
					Text: &types.Content{Data: aws.String(textBody), Charset: charset},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	return nil
}
