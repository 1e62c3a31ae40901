package core

import "github.com/h3poteto/livecamera/internal/domain"

func domainDtls() domain.DtlsParameters {
	return domain.DtlsParameters{
		Role:         domain.DtlsRoleClient,
		Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}
}

func domainParams() domain.RtpParameters {
	return domain.RtpParameters{
		Codecs: []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
	}
}
