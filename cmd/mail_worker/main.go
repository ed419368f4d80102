package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cleanhub/internal/config"
	"cleanhub/internal/notify"
)

const kafkaGroupID = "cleanhub-mail-worker"

// mail_worker drains the email queue filled by the API when
// NOTIFY_TRANSPORT is amqp or kafka, and delivers each message over SMTP.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn msg=.env not loaded err=%v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.SMTPHost == "" {
		log.Fatal("SMTP_HOST is required for the mail worker")
	}

	smtp := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, log.Printf)
	handle := func(ctx context.Context, msg notify.Message) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
		defer cancel()
		return smtp.Send(ctx, msg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.NotifyTransport {
	case config.TransportAMQP:
		log.Printf("level=info msg=mail worker consuming queue=%s", cfg.AMQPQueue)
		err = notify.ConsumeAMQP(ctx, cfg.AMQPURL, cfg.AMQPQueue, handle, log.Printf)
	case config.TransportKafka:
		log.Printf("level=info msg=mail worker consuming topic=%s group=%s", cfg.KafkaTopic, kafkaGroupID)
		err = notify.ConsumeKafka(ctx, cfg.KafkaBrokers, kafkaGroupID, cfg.KafkaTopic, handle, log.Printf)
	default:
		log.Fatalf("NOTIFY_TRANSPORT=%s has no queue to consume; use amqp or kafka", cfg.NotifyTransport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("mail worker stopped: %v", err)
	}
	log.Printf("level=info msg=mail worker stopped")
}
