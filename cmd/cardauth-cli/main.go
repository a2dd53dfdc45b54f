package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"paygate/cardauth/pkg/config"
	"paygate/cardauth/pkg/cres"
	"paygate/cardauth/pkg/flow"
	"paygate/cardauth/pkg/nuvei"
	"paygate/cardauth/pkg/nuvei/response"
)

func promptValue(reader *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Printf("%s [%s] > ", label, current)
	} else {
		fmt.Printf("%s > ", label)
	}
	input, err := reader.ReadString('\n')
	if err != nil {
		eMsg := fmt.Sprintf("error reading %s, leaving", label)
		log.WithError(err).Error(eMsg)
		return "", errors.Wrap(err, eMsg)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return current, nil
	}
	return input, nil
}

func run() error {
	log.Info("Starting card authentication CLI")

	err := godotenv.Load()
	if err != nil {
		log.WithError(err).Error("error loading .env, ignoring")
	}

	conf, err := config.Load()
	if err != nil {
		log.WithError(err).Error("error loading configuration")
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	userId := os.Getenv("USER_ID")
	cardNumber := os.Getenv("CARD_NUMBER")
	holderName := os.Getenv("NAME_ON_CARD")
	cardExpiry := os.Getenv("CARD_EXPIRY")

	processor := nuvei.NewClient(*conf)
	challenge := cres.NewClient(*conf)
	log.Info("clients initialized")

	// terminalChan is signaled by the callbacks once the 3DS flow
	// settles, so the prompt loop can wait out the background poll
	terminalChan := make(chan struct{}, 1)
	callbacks := flow.CallbackFuncs{
		Loading: func(isLoading bool) {
			log.WithField("loading", isLoading).Debug("busy state changed")
		},
		Success: func(accepted bool, message string) {
			fmt.Printf("\nresult: accepted=%v message=%q\n", accepted, message)
		},
		Verify: func(resp *response.Verify) {
			fmt.Printf("\nverification response: status=%v status_detail=%d\n", resp.Status(), resp.StatusDetail())
			select {
			case terminalChan <- struct{}{}:
			default:
			}
		},
		Challenge: func(challengeHtml string) {
			path := filepath.Join(os.TempDir(), "cardauth-challenge.html")
			if wErr := os.WriteFile(path, []byte(challengeHtml), 0600); wErr != nil {
				log.WithError(wErr).Error("error writing challenge document")
				return
			}
			fmt.Printf("\n3DS challenge received, open in a browser to complete: %s\n", path)
			fmt.Println("waiting for the challenge service to report completion...")
		},
		Error: func(e flow.ErrorModel) {
			fmt.Printf("\nerror: type=%s description=%q\n", e.Err.Type, e.Err.Description)
			select {
			case terminalChan <- struct{}{}:
			default:
			}
		},
	}

	service := flow.NewService(*conf, processor, challenge, callbacks)

	if userId, err = promptValue(reader, "user id", userId); err != nil {
		return err
	}
	if cardNumber, err = promptValue(reader, "card number", cardNumber); err != nil {
		return err
	}
	if holderName, err = promptValue(reader, "name on card", holderName); err != nil {
		return err
	}
	if cardExpiry, err = promptValue(reader, "card expiry (MM/YY)", cardExpiry); err != nil {
		return err
	}
	var cardCvc string
	if cardCvc, err = promptValue(reader, "card cvc", ""); err != nil {
		return err
	}

	err = service.SubmitCard(ctx, flow.SubmitCardRequest{
		UserId:            userId,
		CardNumber:        cardNumber,
		HolderName:        holderName,
		Expiry:            cardExpiry,
		Cvc:               cardCvc,
		RequireHolderName: holderName != "",
	})
	if err != nil {
		eMsg := "error submitting card"
		log.WithError(err).Error(eMsg)
		return errors.Wrap(err, eMsg)
	}

	for service.State().AwaitingOtp {
		var otpCode string
		if otpCode, err = promptValue(reader, "otp code", ""); err != nil {
			return err
		}
		err = service.SubmitOtp(ctx, otpCode)
		if err != nil {
			eMsg := "error submitting otp"
			log.WithError(err).Error(eMsg)
			return errors.Wrap(err, eMsg)
		}
		if service.State().AwaitingOtp && !service.State().OtpValid {
			fmt.Println("otp rejected, try again")
		}
	}

	if service.State().Awaiting3ds {
		select {
		case <-terminalChan:
		case <-time.After(conf.ContinueDeadline):
			log.Warn("challenge was not completed in time, cancelling")
			service.CancelChallenge()
		}
	}

	log.Info("done")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
