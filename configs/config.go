package configs

import (
	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

type EnvVariables struct {
	ServerHost      string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	ServerPort      string `envconfig:"SERVER_PORT" default:"8080"`
	CameraDevice    int    `envconfig:"CAMERA_DEVICE" default:"0"`
	FrameWidth      int    `envconfig:"FRAME_WIDTH" default:"640"`
	FrameHeight     int    `envconfig:"FRAME_HEIGHT" default:"480"`
	Framerate       int    `envconfig:"FRAMERATE" default:"30"`
	VideoBitrate    int    `envconfig:"VIDEO_BITRATE" default:"1000000"`
	StunServer      string `envconfig:"STUN_SERVER" default:"stun:stun.l.google.com:19302"`
	RelayRtspUrl    string `envconfig:"RELAY_RTSP_URL"`
	StaticDir       string `envconfig:"STATIC_DIRECTORY" default:"./static"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"10"`
}

type DetectorEnvs struct {
	PoseProto   string `envconfig:"POSE_PROTO" default:"./models/pose_deploy_linevec.prototxt"`
	PoseWeights string `envconfig:"POSE_WEIGHTS" default:"./models/pose_iter_440000.caffemodel"`
	HandProto   string `envconfig:"HAND_PROTO" default:"./models/hand_deploy.prototxt"`
	HandWeights string `envconfig:"HAND_WEIGHTS" default:"./models/hand_iter_102000.caffemodel"`
}

func MustConfig() *EnvVariables {
	var ev EnvVariables
	err := envconfig.Process("", &ev)
	if err != nil {
		panic(err)
	}
	return &ev
}

func MustConfigDetectors() *DetectorEnvs {
	var de DetectorEnvs
	err := envconfig.Process("", &de)
	if err != nil {
		panic(err)
	}
	return &de
}
