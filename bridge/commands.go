package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Init issues the page-side init handshake for cfg. Unlike commands, the
// call is not gated on the engine handle: the loader queues it until the
// engine is ready. cfg must JSON-encode to the init config wire shape.
func (b *Bridge) Init(cfg any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("bridge: encode init config: %w", err)
	}
	return b.runner.Execute(context.Background(), "stelwidgetInit("+string(raw)+");")
}

// IsReady reports whether the loader has set this widget's readiness
// flag. Also not gated on the engine handle, since the flag is what
// tells us the handle exists.
func (b *Bridge) IsReady(ctx context.Context) (bool, error) {
	v, err := b.runner.Evaluate(ctx,
		"window.__stelwidget!==undefined&&window.__stelwidget.ready["+jsString(b.widgetID)+"]===true",
		b.queryTimeout)
	if err != nil {
		return false, err
	}
	ready, _ := v.(bool)
	return ready, nil
}

// SetLocation sets the observer position. Degrees in, converted by the
// engine's D2R constant.
func (b *Bridge) SetLocation(latitude, longitude float64) error {
	return b.run("stel.observer.latitude=" + jsNumber(latitude) + "*stel.D2R;" +
		"stel.observer.longitude=" + jsNumber(longitude) + "*stel.D2R;")
}

// SetDateTime sets the observation time from a Unix timestamp in
// milliseconds, via the engine's MJD conversion.
func (b *Bridge) SetDateTime(timestampMS float64) error {
	return b.run("stel.observer.utc=stel.date2MJD(" + jsNumber(timestampMS) + ");")
}

// LookAt centers and locks the view on a named object. The name follows
// the engine's catalog convention (e.g. "NAME Polaris") and is passed
// through unchanged.
func (b *Bridge) LookAt(objectName string) error {
	return b.run("var obj=stel.getObj(" + jsString(objectName) + ");" +
		"if(obj){stel.core.selection=obj;stel.pointAndLock(obj);}")
}

// SetFOV sets the field of view in degrees.
func (b *Bridge) SetFOV(fovDegrees float64) error {
	return b.run("stel.core.fov=" + jsNumber(fovDegrees) + "*stel.D2R;")
}

func (b *Bridge) setVisible(path string, visible bool) error {
	return b.run("stel.core." + path + "=" + jsBool(visible) + ";")
}

func (b *Bridge) SetConstellationLines(visible bool) error {
	return b.setVisible("constellations.lines_visible", visible)
}

func (b *Bridge) SetConstellationLabels(visible bool) error {
	return b.setVisible("constellations.labels_visible", visible)
}

func (b *Bridge) SetAtmosphere(visible bool) error {
	return b.setVisible("atmosphere.visible", visible)
}

func (b *Bridge) SetLandscape(visible bool) error {
	return b.setVisible("landscapes.visible", visible)
}

func (b *Bridge) SetAzimuthalGrid(visible bool) error {
	return b.setVisible("lines.azimuthal.visible", visible)
}

func (b *Bridge) SetEquatorialGrid(visible bool) error {
	return b.setVisible("lines.equatorial.visible", visible)
}

func (b *Bridge) SetMilkyWay(visible bool) error {
	return b.setVisible("milkyway.visible", visible)
}

// altAzBody computes the observed alt/az of a named object and returns
// the selected spherical coordinate in degrees.
func altAzBody(objectName string, index int, normalize bool) string {
	body := "var obj=stel.getObj(" + jsString(objectName) + ");" +
		"if(!obj)return null;" +
		"var pvo=obj.getInfo('pvo',stel.observer);" +
		"if(!pvo)return null;" +
		"var observed=stel.convertFrame(stel.observer,'ICRF','OBSERVED',pvo[0]);" +
		"var azalt=stel.c2s(observed);" +
		"var v=stel.anp(azalt[" + jsNumber(float64(index)) + "])/stel.D2R;"
	if normalize {
		body += "if(v>180)v-=360;"
	}
	return body + "return v;"
}

// ObjectAltitude returns the altitude of a named object above the
// horizon, in degrees normalized to (-180, 180].
func (b *Bridge) ObjectAltitude(ctx context.Context, objectName string) (float64, error) {
	return b.evalNumber(ctx, altAzBody(objectName, 1, true))
}

// ObjectAzimuth returns the azimuth of a named object in degrees
// (0-360, north 0, east 90).
func (b *Bridge) ObjectAzimuth(ctx context.Context, objectName string) (float64, error) {
	return b.evalNumber(ctx, altAzBody(objectName, 0, false))
}
