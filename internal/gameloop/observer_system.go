package gameloop

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Path задает траекторию наблюдателя в плоскости XZ
type Path interface {
	At(t float64) (x, z float64)
}

// CirclePath - движение по окружности, Speed в радианах в секунду
type CirclePath struct {
	CentreX, CentreZ float64
	Radius           float64
	Speed            float64
}

func (p CirclePath) At(t float64) (float64, float64) {
	a := t * p.Speed
	return p.CentreX + p.Radius*math.Cos(a), p.CentreZ + p.Radius*math.Sin(a)
}

// LinePath - движение туда и обратно между From и To, Speed в мировых единицах в секунду
type LinePath struct {
	From, To mgl32.Vec2
	Speed    float64
}

func (p LinePath) At(t float64) (float64, float64) {
	d := p.To.Sub(p.From)
	length := float64(d.Len())
	if length == 0 || p.Speed <= 0 {
		return float64(p.From.X()), float64(p.From.Y())
	}
	s := math.Mod(t*p.Speed, 2*length)
	if s > length {
		s = 2*length - s
	}
	k := float32(s / length)
	pos := p.From.Add(d.Mul(k))
	return float64(pos.X()), float64(pos.Y())
}

// ObserverSystem двигает наблюдателя по траектории, держит его на поверхности
// и не пускает сквозь препятствия.
type ObserverSystem struct {
	deps      Dependencies
	path      Path
	radius    float64
	eyeHeight float64
	elapsed   float64
	ticks     int64
	blocked   int64
}

// NewObserverSystem создает систему; radius - радиус тела наблюдателя
func NewObserverSystem(path Path, radius, eyeHeight float64) *ObserverSystem {
	return &ObserverSystem{path: path, radius: radius, eyeHeight: eyeHeight}
}

func (o *ObserverSystem) Name() string { return "observer" }

func (o *ObserverSystem) Init(deps Dependencies) error {
	if deps.Observer == nil {
		return errors.New("observer system requires observer")
	}
	o.deps = deps
	return nil
}

// Blocked возвращает число тиков, в которые движение было заблокировано
func (o *ObserverSystem) Blocked() int64 { return o.blocked }

func (o *ObserverSystem) Tick(ctx context.Context, dt time.Duration) {
	if o.deps.Observer == nil || o.path == nil {
		return
	}
	o.ticks++
	o.elapsed += dt.Seconds()
	x, z := o.path.At(o.elapsed)

	cur := o.deps.Observer.Position()
	if st := o.deps.Streamer; st != nil {
		if hits := st.Obstacles().Overlapping(x, z, o.radius); len(hits) > 0 {
			o.blocked++
			o.deps.emit(Event{Type: EventObserverBlocked, Tick: o.ticks, Key: hits[0].Key, Position: cur})
			x, z = float64(cur.X()), float64(cur.Z())
		}
	}

	y := 0.0
	if st := o.deps.Streamer; st != nil {
		y = st.Field().GroundHeight(x, z)
	}
	o.deps.Observer.SetPosition(mgl32.Vec3{float32(x), float32(y + o.eyeHeight), float32(z)})
}
