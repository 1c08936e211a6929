// Package system assembles the hub, the scheduled tasks and the tick source
// from a Config.
package system

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"flightcore/internal/ahrs"
	"flightcore/internal/config"
	"flightcore/internal/ins"
	"flightcore/internal/pipeline"
	"flightcore/internal/schedule"
	"flightcore/internal/sim"
	"flightcore/internal/sysled"
	"flightcore/internal/telemetry"
	"flightcore/internal/tick"
)

var (
	newSource  = tick.New
	newUDPSink = func(dest string) (telemetrySink, error) { return telemetry.NewUDPSink(dest) }
	openLED    = sysled.Open
)

type telemetrySink interface {
	telemetry.Sink
	io.Closer
}

// System owns every running component. All tasks run on the master
// scheduler from one goroutine.
type System struct {
	cfg config.Config

	hub       *pipeline.Hub
	scheduler *schedule.Scheduler
	driver    *pipeline.Driver
	telemetry *telemetry.Telemetry
	sensors   *sim.Sensors
	led       *sysled.LED
	sink      telemetrySink

	loop *tick.Loop
}

func New(cfg config.Config) (*System, error) {
	logger := log.WithField("component", "system")

	hub := pipeline.NewHub()
	w, err := hub.Writers()
	if err != nil {
		return nil, err
	}
	imu, err := cfg.IMU.AHRS(cfg.Rates.Sample)
	if err != nil {
		return nil, fmt.Errorf("imu: %w", err)
	}

	s := &System{cfg: cfg, hub: hub}
	var units []schedule.Schedulable

	if cfg.Sim.Enable {
		traj, err := trajectory(cfg.Sim)
		if err != nil {
			return nil, err
		}
		s.sensors = sim.NewSensors(sim.SensorsConfig{
			SampleRate:       cfg.Rates.Sample,
			GNSSRate:         cfg.Rates.GNSS,
			BaroRate:         cfg.Rates.Baro,
			MagnetometerRate: cfg.Rates.Magnetometer,
			GroundTime:       cfg.Sim.GroundTime,
			DeclinationDeg:   cfg.IMU.DeclinationDeg,
			GyroBiasDps:      cfg.Sim.GyroBiasDps.R3(),
			BatteryMv:        cfg.Sim.BatteryMv,
		}, traj, w.Sensors)
		units = append(units, s.sensors)
	}

	s.driver = pipeline.NewDriver(pipeline.DriverConfig{
		SampleRate:       cfg.Rates.Sample,
		GNSSRate:         cfg.Rates.GNSS,
		BaroRate:         cfg.Rates.Baro,
		MagnetometerRate: cfg.Rates.Magnetometer,
		SpeedometerKp:    cfg.INS.Speedometer.Kp,
		IMU:              imu,
	}, hub, w.Outputs)

	// Producers run before their consumers within a tick.
	units = append(units,
		pipeline.NewGNSSSplitter(schedule.Rate(cfg.Rates.GNSS), hub, w),
		ins.NewAltimeter(schedule.Rate(cfg.Rates.Baro), hub.Pressure.Reader(), w.Altitude, w.VerticalSpeed),
		s.driver,
	)

	if cfg.Telemetry.Enable {
		sink, err := newUDPSink(cfg.Telemetry.Dest)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		s.sink = sink
	}
	var sink telemetry.Sink
	if s.sink != nil {
		sink = s.sink
	}
	s.telemetry = telemetry.New(schedule.Rate(cfg.Rates.Telemetry), hub, sink, telemetry.Options{
		Calibration: s.driver.IMU().Calibration(),
	})
	units = append(units, s.telemetry)

	if cfg.LED.Enable {
		pin, err := openLED(cfg.LED.Chip, cfg.LED.Pin)
		if err != nil {
			// A missing status LED must not keep the estimator from running.
			logger.Warnf("status led disabled: %v", err)
		} else {
			s.led = sysled.New(schedule.Rate(cfg.Rates.LED), pin, s.driver.IMU().Calibration())
			units = append(units, s.led)
		}
	}

	s.scheduler = schedule.New(schedule.Rate(cfg.Rates.Master), units...)
	s.telemetry.AttachScheduler(s.scheduler)

	logger.Infof("master=%sHz sample=%sHz tasks=%d sim=%t telemetry=%t led=%t",
		humanize.Comma(int64(cfg.Rates.Master)), humanize.Comma(int64(cfg.Rates.Sample)),
		s.scheduler.Len(), cfg.Sim.Enable, s.sink != nil, s.led != nil)
	return s, nil
}

func trajectory(cfg config.SimConfig) (sim.Trajectory, error) {
	if cfg.Script != "" {
		fs, err := sim.LoadFlightScript(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("sim script: %w", err)
		}
		sc, err := sim.NewScript(fs, cfg.Loop)
		if err != nil {
			return nil, fmt.Errorf("sim script: %w", err)
		}
		return sc, nil
	}
	return sim.Orbit{
		CenterLatDeg: cfg.CenterLatDeg,
		CenterLonDeg: cfg.CenterLonDeg,
		AltM:         cfg.AltM,
		RadiusM:      cfg.RadiusM,
		Period:       cfg.Period,
	}, nil
}

// Tick runs one master period without a tick source.
func (s *System) Tick() { s.scheduler.Tick() }

// Run drives the scheduler from the configured tick source until ctx is
// done.
func (s *System) Run(ctx context.Context) error {
	src, err := newSource(s.cfg.Tick.Source, s.cfg.Rates.Master)
	if err != nil {
		return fmt.Errorf("tick source: %w", err)
	}
	defer src.Close()

	s.loop = tick.NewLoop(src)
	err = s.loop.Run(ctx, s.scheduler.Tick)

	st := s.scheduler.Stats()
	ls := s.loop.Stats()
	log.WithField("component", "system").Infof("stopped after %s ticks (missed=%d overruns=%d faults=%d)",
		humanize.Comma(int64(st.Ticks)), ls.Missed, st.Overruns, st.Faults)
	return err
}

// Close releases the telemetry socket and the LED line.
func (s *System) Close() error {
	var err error
	if s.led != nil {
		err = multierr.Append(err, s.led.Close())
	}
	if s.sink != nil {
		err = multierr.Append(err, s.sink.Close())
	}
	return err
}

func (s *System) Hub() *pipeline.Hub { return s.hub }
func (s *System) Scheduler() *schedule.Scheduler { return s.scheduler }
func (s *System) Telemetry() *telemetry.Telemetry { return s.telemetry }
func (s *System) Sensors() *sim.Sensors { return s.sensors }
func (s *System) CalibrationState() ahrs.State { return s.driver.IMU().Calibration().State() }
func (s *System) Positioning() *ins.Positioning { return s.driver.Positioning() }
